// Package sc64 implements the host side of the SC64 link protocol.
//
// A Link talks to the device through one Backend:
//
//   - SerialBackend drives a local USB serial port. Opening it performs the
//     DTR/DSR reset handshake before any command can be sent.
//   - StreamBackend talks to a remote bridge over TCP, where every frame
//     carries an explicit 4-byte type tag.
//
// Commands are strictly half duplex: ExecuteCommand sends one Command and
// blocks until the matching Response arrives. Packets the device produces on
// its own are queued in arrival order, whether they show up while a command is
// waiting or not, and are handed out by ReceivePacket.
//
// Example usage:
//
//	link, err := sc64.NewLocal("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer link.Close()
//
//	version, err := link.ExecuteCommand(&sc64.Command{ID: 'V'})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    packet, err := link.ReceivePacket()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if packet == nil {
//	        continue // nothing yet
//	    }
//	    fmt.Printf("packet %c: %d bytes\n", packet.ID, len(packet.Data))
//	}
//
// A Link is not safe for concurrent use. Callers sharing one between
// goroutines must serialize access themselves.
package sc64
