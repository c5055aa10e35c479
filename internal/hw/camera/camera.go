package camera

// Camera is the interface the capture logic drives. It represents an
// abstract snapshot camera with a freezable frame buffer, regardless of
// which chip or transport sits behind it.
type Camera interface {
	// Reset reboots the camera into a known state.
	Reset() error
	// Freeze locks the current frame buffer for readout.
	Freeze() error
	// Resume releases the frame buffer after readout.
	Resume() error
	// FrameLength reports the size in bytes of the frozen frame.
	FrameLength() (uint32, error)
	// ReadChunk downloads up to n bytes of the frozen frame starting at
	// offset. It may return fewer bytes than requested.
	ReadChunk(offset uint32, n int) ([]byte, error)
}
