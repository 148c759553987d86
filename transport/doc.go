// Package transport provides the three S-Bus transport variants: Ethernet
// (UDP or TCP), Serial (local line, TCP serial server or WebSocket serial
// server) and Profibus gateway.
//
// All variants implement Transport. New maps a Config onto the matching variant:
//
//	cfg, err := transport.NewEthernetConfig("192.168.1.100", transport.DefaultPort,
//		transport.WithTimeout(2*time.Second))
//	if err != nil {
//		return err
//	}
//	tr, err := transport.New(cfg)
//
// # Timeouts and Retries
//
// Each attempt waits at most the configured timeout for a complete response.
// Only timeouts are retried. Ethernet transports make up to three attempts
// with a backoff of 0.5s and then 1s; serial and Profibus transports make one
// attempt unless WithAttempts says otherwise. CRC and protocol errors are
// never retried here.
//
// # Stale Input
//
// Every attempt first discards whatever the medium has buffered: queued UDP
// datagrams, unread TCP bytes, the serial driver's input buffer or queued
// WebSocket messages. A late answer to an abandoned request can therefore
// never be taken for the answer to the next one.
package transport
