package engine

// headerAD binds the header ciphertext to session_id, protocol_version,
// suite_id, dh_pub, flags, and pq_bind, per spec.md §4.5.
func headerAD(sessionID [16]byte, protocolVersion, suite uint16, dhPub [32]byte, flags uint16, pqBind []byte) []byte {
	ad := make([]byte, 0, 16+2+2+32+2+len(pqBind))
	ad = append(ad, sessionID[:]...)
	ad = append(ad, byte(protocolVersion>>8), byte(protocolVersion))
	ad = append(ad, byte(suite>>8), byte(suite))
	ad = append(ad, dhPub[:]...)
	ad = append(ad, byte(flags>>8), byte(flags))
	ad = append(ad, pqBind...)
	return ad
}

// bodyAD binds the body ciphertext to session_id, protocol_version,
// suite_id, and pq_bind only: it deliberately excludes dh_pub, flags,
// and the header ciphertext so that a body's authentication does not
// depend on header framing details, per spec.md §4.5.
func bodyAD(sessionID [16]byte, protocolVersion, suite uint16, pqBind []byte) []byte {
	ad := make([]byte, 0, 16+2+2+len(pqBind))
	ad = append(ad, sessionID[:]...)
	ad = append(ad, byte(protocolVersion>>8), byte(protocolVersion))
	ad = append(ad, byte(suite>>8), byte(suite))
	ad = append(ad, pqBind...)
	return ad
}
