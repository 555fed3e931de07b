package version

// Version is the current release of peer-weaver
const Version = "0.2.0"
