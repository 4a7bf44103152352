package domain

// Authority authorizes a debit from a custody account. Signer must equal the
// debited account's owner. Proof is empty for principals, who are
// authenticated upstream, and carries the capability token when Signer is a
// derived escrow authority.
type Authority struct {
	Signer AccountRef
	Proof  string
}

// Authority returns the authority of a principal signing for its own accounts.
func (p Principal) Authority() Authority {
	return Authority{Signer: AccountRef(p)}
}

// IsDerived reports whether the authority presents a capability proof.
func (a Authority) IsDerived() bool {
	return a.Proof != ""
}
