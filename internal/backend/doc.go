// Package backend implements the device side of the dispenser backend protocol:
// pairing, schedule configuration fetch and event posting.
//
// # Endpoints
//
// All three calls are per device:
//
//	POST {base}/{prefix}/devices/{serial}/pair/    -> 200 {"device_secret": "..."} | 409
//	GET  {base}/{prefix}/devices/{serial}/config/  -> 200 {"schedule_version": n, "containers": [...]}
//	POST {base}/{prefix}/devices/{serial}/events/  -> 204
//
// Authenticated calls carry the secret in the X-Device-Secret header.
//
// # Pairing
//
// Pairing owns the secret. The first call that needs it loads it from the
// credential store; if none is stored it pairs and persists the result before
// caching it. A 409 from the pair endpoint means the backend already holds a
// record this device cannot prove, and the controller stops asking until an
// operator resets the backend record, restores the secret or restarts.
//
// # Usage Example
//
//	endpoints, err := backend.NewEndpoints("https://backend.example", backend.DefaultAPIPrefix, "SN-0001")
//	if err != nil {
//	    return err
//	}
//	client := backend.NewClient(endpoints, httpClient)
//	pairing := backend.NewPairing(client, store)
//	sync := backend.NewConfigSync(client, pairing, link)
//
//	model := schedule.NewModel()
//	if err := sync.FetchConfig(ctx, model); err != nil {
//	    fmt.Println(backend.TroubleshootingHint(err))
//	}
//
// # Errors
//
// Every operation returns nil or a *SyncError; use the Is* helpers or
// AsSyncError to inspect it. No call retries internally.
package backend
