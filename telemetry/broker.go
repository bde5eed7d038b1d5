package telemetry

// TrySend offers v to c without waiting and reports whether c took it. A full
// channel leaves v with the caller.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}
