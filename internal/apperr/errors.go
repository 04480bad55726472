package apperr

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNotAbsolute         = errors.New("path is not absolute")
	ErrInvalidRoot         = errors.New("root location not recognised")
	ErrChecksumConflict    = errors.New("checksum conflict")
	ErrEscapedManifest     = errors.New("escaped filenames in manifest are not supported")
	ErrMalformedManifest   = errors.New("malformed manifest line")
	ErrUnsupportedDocument = errors.New("unsupported phenopacket variant")
	ErrConsentConflict     = errors.New("more than one consentpacket at one level")
	ErrNoResult            = errors.New("no check has completed")
)
