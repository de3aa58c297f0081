// Package dispatch implements provider registration, API-key balancing
// strategies, and the select-and-failover algorithm of the gateway's
// dispatcher, grounded on llm/apikey_pool.go's strategy-driven key
// selection, simplified to the three strategies the gateway supports.
package dispatch
