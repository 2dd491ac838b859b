// Package sparse decodes and re-chunks Android sparse images.
//
// # Format
//
// A sparse image is a 28-byte file header followed by chunks, each with a
// 12-byte header:
//
//	magic 0xed26ff3a | major | minor | file hdr size | chunk hdr size |
//	block size | total blocks | total chunks | image checksum
//
//	type | reserved | blocks | total size (header included)
//
// Chunk types are Raw (literal blocks), Fill (a 4-byte pattern repeated over
// the blocks), Skip (blocks of zeros with no payload) and CRC32 (a trailing
// checksum with no output).
//
// # Usage
//
//	hdr, r, err := sparse.Probe(f)
//	if hdr == nil {
//	    // raw image
//	}
//	dec, err := sparse.NewReader(r)
//	io.Copy(w, dec)
//
// Split cuts an image into standalone sparse images that each expand to at
// most a given number of bytes, so a large image can be written in several
// commands.
package sparse
