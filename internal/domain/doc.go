// Package domain models cellular observations, cell towers and the results
// of positioning a device from the towers it can hear.
//
// # Cell identities
//
// A tower is identified by (MCC, MNC, cell ID, LAC) where LAC may be absent.
// LTE cell IDs are 28-bit ECIs, NR cell IDs use up to 36 bits, so cell IDs are
// carried as int64 throughout.
//
// Device radios report placeholder values when a field is unknown:
//
//	2147483647 (int32 max)   unknown MCC, MNC, cell ID, PCI or EARFCN
//	268435455  (28-bit max)  unknown LTE cell identity
//	65535      (16-bit max)  unknown TAC/LAC
//
// Those values never reach the tower store; see [IsSentinel].
//
// # Signal conventions
//
// Signal strength is RSRP (LTE/NR) or RSSI (GSM/UMTS) in dBm, plausible in
// [-140, -20]. RSRQ is in dB. Timing advance is in LTE steps of ~78 m.
//
// # Provenance
//
// Every resolved tower carries the path that produced it: an exact local
// match, a local signature (neighbor) match, the name of the external
// provider that answered, or NOT_FOUND. Absence is a value, not an error.
package domain
