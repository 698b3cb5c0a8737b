// Package serialization saves and loads network state dicts in the .born
// checkpoint format.
//
//	Format Structure (v2):
//	  0x00 [4 bytes: Magic "BORN"]
//	  0x04 [4 bytes: Version (uint32 LE)]
//	  0x08 [4 bytes: Flags (uint32 LE)]
//	  0x0C [4 bytes: Reserved]
//	  0x10 [8 bytes: Header Size (uint64 LE)]
//	  0x18 [8 bytes: Data Size (uint64 LE)]
//	  0x20 [32 bytes: SHA-256 of the data section]
//	  0x40 [Header: JSON metadata]
//	       [Tensor data: little-endian values, 64-byte aligned]
//
// Every tensor is a 2-D matrix (biases and batch norm vectors are stored as 1xD
// rows) and is stored as float64, float32 or float16. Values are always read
// back into float64 gonum matrices.
//
// The package also exports state dicts to the SafeTensors format for use by
// other frameworks.
//
// Example usage:
//
//	// Save a network
//	err := serialization.Save("model.born", net.StateDict(), serialization.WriteOptions{
//	    ModelType: "FullyConnectedNet",
//	    DType:     tensor.Float32,
//	})
//
//	// Load it back
//	dict, header, err := serialization.Load("model.born")
//	if err != nil {
//	    return err
//	}
//	err = net.LoadStateDict(dict)
package serialization
