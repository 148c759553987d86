// Package pcd implements the S-Bus protocol engine for SAIA PCD controllers.
//
// A Client encodes typed operations (read registers, write a flag, read the
// device identity, ...) into telegrams, exchanges them over a
// transport.Transport and validates the responses. All arguments are range
// checked before any I/O; violations fail with an error wrapping
// sbus.ErrOutOfRange.
//
// At most one exchange is in flight per Client. Concurrent callers queue on
// an exclusive section and may abandon the wait through their context.
//
// Example:
//
//	cfg, _ := transport.NewEthernetConfig("192.168.1.100", transport.DefaultPort)
//	tr, _ := transport.New(cfg)
//	client, _ := pcd.NewClient(tr, pcd.WithStation(0))
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Disconnect()
//
//	values, err := client.ReadRegisters(ctx, 100, 3)
package pcd
