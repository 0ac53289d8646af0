// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perffile is a parser for Linux perf.data profiles. It is
// the raw record reader/demuxer that the rest of this module treats
// as an external collaborator reachable only through perfevent's
// typed record contract (cmd/profconv/translate.go is the sole
// adapter between the two); nothing outside cmd/profconv imports it
// directly, and it lives under internal/ to keep that boundary real
// rather than advisory.
//
// Parsing a perf.data profile starts with a call to New or Open to
// open a perf.data file. A perf.data file consists of a sequence of
// records, which can be retrieved with File.Records, as well as
// several metadata fields, which can be retrieved with other methods
// of File.
package perffile
