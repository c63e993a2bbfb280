// Package identity maps verified assertion claims to the host
// application's users, optionally provisioning accounts just-in-time and
// recording SSO provenance metadata.
package identity
