// Package epp defines the decoded command/response envelope the registry
// core executes, together with the fixed numeric result taxonomy and
// transaction identifier pairing.
//
// Wire-format marshalling is an external collaborator: commands arrive here
// already decoded and responses leave as plain structs. The numeric result
// codes are protocol constants and must be preserved bit-for-bit.
package epp
