// Package credential persists the device secret issued by the backend at pairing.
//
// A Store holds exactly one secret under a fixed namespace and key. An absent
// secret is not an error: Load returns "" and a nil error, which callers read
// as "unpaired". Save must not return nil until the value survives power loss.
//
// # Backends
//
//   - file: a YAML document (namespace -> key -> value) replaced atomically
//     through a temp file, fsync and rename
//   - keyring: the OS keyring (Secret Service, Keychain, Credential Manager)
//   - sqlite: a single key/value table with synchronous=FULL
//
// Open picks a backend from Options:
//
//	store, err := credential.Open(credential.Options{
//	    Backend:   credential.BackendFile,
//	    Path:      "/var/lib/aurora/credentials.yaml",
//	    Namespace: credential.DefaultNamespace,
//	    Key:       credential.DefaultKey,
//	})
//
// # Watching
//
// Watcher reports out-of-band edits to the file backend (an operator restoring
// a secret by hand) so the pairing controller can reload without a restart.
package credential
