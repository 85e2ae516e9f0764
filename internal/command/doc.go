// Package command parses raw chat text into structured commands.
//
// The parser is pure: it splits the command name from its whitespace
// delimited arguments and validates shape against the grammar in Specs,
// but performs no I/O and never consults permissions or the server
// registry. Unknown names and malformed argument lists come back as
// *ParseError; everything else is resolved by the dispatcher.
package command
