// Package session implements C7 over two envelope shapes from
// pkg/wire: EncryptedEnvelope (sign-then-encrypt, for directed private
// payloads) and SignedEnvelope (sign-only, for broadcast/discoverable
// messages). TrustTable backs both verify paths with TOFU-by-default
// key pinning and automatic quarantine on key conflict.
package session
