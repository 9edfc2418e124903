// Package vault provides serialized, timeout-bounded access to a
// device secret store.
//
// All operations run on a single FIFO worker, one at a time, because a
// gated read may raise the device authentication prompt and the prompt
// is a globally exclusive resource. Two timeout classes apply: a short
// one for plain reads and writes, a longer one for operations that may
// wait on the user.
//
// Failure policy:
//   - Put: on failure, reset the key and retry once; abandon after that.
//     Persistence is best-effort and callers must tolerate a miss.
//   - Get: on primary failure, fall back to the secondary store, then
//     report absence. A cancelled or failed device authentication
//     prompt is reported as ErrAuthGateFailed instead, since the secret
//     may still exist.
//
// # Basic Usage
//
//	store, err := vault.NewStore("file", vault.StoreConfig{
//		DataDir:    cfg.DataDir,
//		Passphrase: cfg.Passphrase,
//	})
//	if err != nil { ... }
//	v := vault.New(store, vault.WithFallback(vault.NewInMemStore()))
//	defer v.Shutdown()
//
//	if err := v.Put(ctx, "credentials", serialized); err != nil {
//		// best-effort: log and continue
//	}
package vault
