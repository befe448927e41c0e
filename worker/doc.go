/*
Package worker runs a background loop with observability and back-off for no work found.

modellr uses it for the gauge reporter and the instance health monitor, both of
which mostly want to sleep between short bursts of work.
*/
package worker
