// Package console reads administrative commands from the server's stdin.
//
//	exit       stop accepting, keep persisted state, exit
//	exit -r    stop accepting, purge persisted state, exit
//	stats      print the weathermesh_* metrics in Prometheus text format
//	stations   print the live station ids, one per line
//
// Run reports which exit was requested; the caller performs the shutdown.
// When stdin reaches EOF (for example under a process supervisor) the console
// goes quiet and the server keeps running until its context ends.
package console
