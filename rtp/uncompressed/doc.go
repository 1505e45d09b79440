// Package uncompressed implements the DEF-STAN 00-82 raw video transports: a
// Payloader that splits frames into one RTP packet per scan line, and a
// Depayloader that reassembles them.
//
// A typical receiver:
//
//	d := uncompressed.NewDepayloader(uncompressed.Options{})
//	d.SetStreamInfo(info)
//	if err := d.Open(); err != nil {
//	    log.Fatal(err) // no socket, nothing to serve
//	}
//	d.Start()
//	for {
//	    frame, err := d.Receive(80 * time.Millisecond)
//	    if errors.Is(err, stream.ErrTimeout) {
//	        continue
//	    }
//	    ...
//	}
//
// Lines that never arrive keep the pixels of the previous frame. Sequence
// numbers are not used to detect loss.
package uncompressed
