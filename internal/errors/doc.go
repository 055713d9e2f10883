// Package errors provides coded, actionable errors for the voxnet command
// line and configuration layer.
//
// Each error has a code that maps to a registered template:
//   - E1xx: configuration errors (bad file, out-of-range values)
//   - E2xx: runtime errors (cannot bind, ops listener failed)
//
// Network faults inside the tick loop never surface here; the transport
// recovers from them locally.
//
// # Usage
//
//	err := errors.New("E102").
//	    WithFile("voxnet.json").
//	    WithDetail("port 70000 is outside 1-65535")
//
//	fmt.Print(err.Format())
//	// Output:
//	// ERROR E102: Invalid port
//	//
//	//   voxnet.json
//	//
//	//   port 70000 is outside 1-65535
//	//
//	//   Hint: Use a port between 1 and 65535, e.g. "port": 8080
package errors
