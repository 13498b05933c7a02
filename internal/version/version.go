// ABOUTME: Build-time version and device identity constants
// ABOUTME: Reported in client/hello's device_info per spec.md section 4.3
package version

// Version, Product, and Manufacturer identify this client in
// client/hello's device_info object.
const (
	Version      = "0.1.0"
	Product      = "sendspin-player"
	Manufacturer = "sendspin-player project"
)
