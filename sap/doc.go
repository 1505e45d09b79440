// Package sap announces and discovers video streams with the Session
// Announcement Protocol (RFC 2974). Each SAP packet carries an SDP (RFC 4566)
// description of one stream:
//
//	v=0
//	o=- 3394362021 3394362021 IN IP4 192.168.1.10
//	s=front-camera
//	c=IN IP4 239.192.1.1/15
//	t=0 0
//	m=video 5004 RTP/AVP 96
//	a=rtpmap:96 raw/90000
//	a=fmtp:96 sampling=RGB; width=640; height=480; depth=8; colorimetry=BT709-2; progressive
//	a=framerate:25
//
// An Announcer holds the streams offered by this process and multicasts each
// one every second. A Listener keeps the latest announcement seen for every
// session name and calls registered callbacks as they arrive.
//
// Both are ordinary values. Create one of each per process and pass it to the
// components that need it.
package sap
