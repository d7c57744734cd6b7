package mlog

// FormatID formats an ID for logging.
//
// Blueprint IDs are hex-encoded hashes and node incarnations are UUIDs; both
// are abbreviated to their first 8 characters. Any other ID is shown in full.
func FormatID(id string) string {
	switch {
	case len(id) == 36 && id[8] == '-':
		return id[:8]
	case len(id) == 64 && isHex(id):
		return id[:8]
	default:
		return id
	}
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
