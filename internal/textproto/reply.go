package textproto

import "strconv"

// Reply tokens shared verbatim with spec.md §4.3.
var (
	ReplyStored      = []byte("STORED\r\n")
	ReplyNotStored   = []byte("NOT_STORED\r\n")
	ReplyExists      = []byte("EXISTS\r\n")
	ReplyNotFound    = []byte("NOT_FOUND\r\n")
	ReplyDeleted     = []byte("DELETED\r\n")
	ReplyOK          = []byte("OK\r\n")
	ReplyError       = []byte("ERROR\r\n")
	ReplyEnd         = []byte("END\r\n")
	ReplyTooLarge    = []byte("SERVER_ERROR object too large for cache\r\n")
	ReplyOutOfMemory = []byte("SERVER_ERROR out of memory storing object\r\n")
)

// ClientErrorReply formats "CLIENT_ERROR <msg>\r\n".
func ClientErrorReply(msg string) []byte {
	return append([]byte("CLIENT_ERROR "+msg), '\r', '\n')
}

// ServerErrorReply formats "SERVER_ERROR <msg>\r\n".
func ServerErrorReply(msg string) []byte {
	return append([]byte("SERVER_ERROR "+msg), '\r', '\n')
}

// VersionReply formats "VERSION <v>\r\n".
func VersionReply(v string) []byte {
	return append([]byte("VERSION "+v), '\r', '\n')
}

// ValueHeader formats "VALUE <key> <flags> <bytes>[ <cas>]\r\n" preceding a
// get-hit's raw value bytes and trailing CRLF.
func ValueHeader(key []byte, flags uint32, size int, cas uint64, withCAS bool) []byte {
	b := make([]byte, 0, len(key)+32)
	b = append(b, "VALUE "...)
	b = append(b, key...)
	b = append(b, ' ')
	b = strconv.AppendUint(b, uint64(flags), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(size), 10)
	if withCAS {
		b = append(b, ' ')
		b = strconv.AppendUint(b, cas, 10)
	}
	b = append(b, '\r', '\n')
	return b
}
