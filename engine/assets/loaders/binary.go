package loaders

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const spirvMagic uint32 = 0x07230203

var (
	ErrMalformedSPIRV = errors.New("SPIR-V size is not a multiple of 4")
	ErrNotSPIRV       = errors.New("missing SPIR-V magic number")
)

// Asset is a loaded file. Code holds the words of a SPIR-V module.
type Asset struct {
	Name     string
	FullPath string
	DataSize uint64
	Code     []uint32
}

type SPIRVLoader struct{}

func (bl *SPIRVLoader) Load(path string, name string) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrMalformedSPIRV)
	}

	res := bytesToBytecode(buf)
	if len(res) == 0 || res[0] != spirvMagic {
		return nil, fmt.Errorf("%s: %w", path, ErrNotSPIRV)
	}

	return &Asset{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Code:     res,
	}, nil
}

// SPIR-V words are little endian on disk.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
