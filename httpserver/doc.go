// Package httpserver runs an HTTP handler as a system service that shuts down with it.
package httpserver
