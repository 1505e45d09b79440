// Command mediax-transmit streams a generated test card as DEF-STAN 00-82
// raw video over RTP and announces the stream over SAP.
//
// Flag defaults are taken from MEDIAX_* environment variables, optionally
// loaded from a .env file in the working directory.
package main
