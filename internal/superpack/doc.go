// SPDX-License-Identifier: MPL-2.0

// Package superpack implements the superpack wire format.
//
// A superpack is a single remote blob laid out as
//
//	[file payloads][pack metadata][file table][footer]
//
// All integers are little-endian. The footer is fixed-size and sits at the
// very end of the blob so a client can fetch it with a suffix range request,
// learn the size of the metadata and file table, and fetch those next.
//
// Every file is stored as one independently compressed payload. Once a client
// has downloaded and verified a payload it appends a 20-byte [LiteFooter] and
// keeps the result as a standalone local file.
package superpack
