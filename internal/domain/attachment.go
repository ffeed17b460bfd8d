package domain

// Credential is the opaque tenant identifier and bearer token pair attached
// to every outgoing command. The client never inspects or mutates it.
type Credential struct {
	Company     string
	AccessToken string
}

// Attachment is a file that has completed the signed-URL upload and is
// addressable at a durable remote URL.
type Attachment struct {
	Name      string
	RemoteURL string
}

// Preview is the local handle created at file-selection time, before any
// network round-trip. It carries no durability guarantee.
type Preview struct {
	Name     string
	LocalURL string
}
