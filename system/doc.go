/*
Package system manages the startup, running, metrics and shutdown of a modellr process.

Long-running processes hold database instances open, report their health and
gauges in the background, and must release every handle when told to stop.
This package rolls all this up: services run under one errgroup until
termination, metric producers are polled by a worker loop, and cleanups run on
the way out.
*/
package system
