package shared

// SweepLockKey is the redis key guarding against overlapping sweep runs.
// The per-investment status transition stays the authoritative idempotency
// guard; the lock only spares duplicate work when cron and a manual
// trigger coincide.
const SweepLockKey = "deposits:maturity_sweep:lock"
