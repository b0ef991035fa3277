// Package settings is the typed model behind server configuration files.
//
// Every configurable key is described by a Setting in a Catalog: its Kind
// (bool, int, float, duration, string, enum, or nested vectors and structs),
// its default Value, where it is written (INI file, command line, map URL) and,
// for vectors, which INI layout it uses.
//
// Values are read from raw tokens with ParseToken and written back with
// FormatToken using the parenthesized literal syntax of Unreal INI files:
//
//	(ItemClassString="PrimalItemResource_Wood_C",Quantity=(MaxItemQuantity=500,bIgnoreMultiplier=True))
//
// Values that arrive with the wrong shape (for example from an older profile)
// are fitted to their kind with Coerce, or with Resolve which applies the
// Strict or Lenient policy.
package settings
