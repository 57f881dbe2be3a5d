package ember

// Version is Ember's semantic version, reported by the embedding CLI's
// `version` command and useful for callers logging which build indexed
// a given directory.
const Version = "0.1.0"
