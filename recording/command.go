package recording

// CommandType identifies the type of a command.
type CommandType uint8

const (
	CmdUpload       CommandType = iota // Upload host bytes into a new buffer
	CmdUploadConfig                    // Upload a small fixed-layout configuration block
	CmdUploadImage                     // Upload host pixels into a new image
	CmdZeroFill                        // Clear a buffer to zero before use
	CmdDispatch                        // Run a compute stage
	CmdFreeBuffer                      // Release a buffer early
	CmdFreeImage                       // Release an image early
)

var commandTypeNames = [...]string{
	CmdUpload:       "Upload",
	CmdUploadConfig: "UploadConfig",
	CmdUploadImage:  "UploadImage",
	CmdZeroFill:     "ZeroFill",
	CmdDispatch:     "Dispatch",
	CmdFreeBuffer:   "FreeBuffer",
	CmdFreeImage:    "FreeImage",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// Upload fills Buffer with Data. len(Data) == Buffer.Size.
type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

// UploadConfig is an Upload bound only as a configuration block.
type UploadConfig struct {
	Buffer BufferProxy
	Data   []byte
}

// UploadImage fills Image with tightly packed rows of pixels.
type UploadImage struct {
	Image ImageProxy
	Data  []byte
}

// ZeroFill clears Buffer.
type ZeroFill struct {
	Buffer BufferProxy
}

// Dispatch runs Shader over a grid of workgroups. Bindings are positional
// and must follow the shader's declared layout.
type Dispatch struct {
	Shader     ShaderID
	Workgroups [3]uint32
	Bindings   []ResourceProxy
}

// FreeBuffer ends the lifetime of Buffer within the Recording.
type FreeBuffer struct {
	Buffer BufferProxy
}

// FreeImage ends the lifetime of Image within the Recording.
type FreeImage struct {
	Image ImageProxy
}

func (Upload) Type() CommandType       { return CmdUpload }
func (UploadConfig) Type() CommandType { return CmdUploadConfig }
func (UploadImage) Type() CommandType  { return CmdUploadImage }
func (ZeroFill) Type() CommandType     { return CmdZeroFill }
func (Dispatch) Type() CommandType     { return CmdDispatch }
func (FreeBuffer) Type() CommandType   { return CmdFreeBuffer }
func (FreeImage) Type() CommandType    { return CmdFreeImage }
