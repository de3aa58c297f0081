// Package quota implements per-client-token pre-check and post-update
// usage accounting, built on the same atomic-counter-update idiom used
// throughout the GORM store layer.
package quota
