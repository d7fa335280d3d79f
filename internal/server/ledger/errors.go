package ledger

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrAlreadyErased   = errors.New("record already erased")
	ErrErased          = errors.New("record is erased")
	ErrAlreadyIssued   = errors.New("nft already issued")
	ErrNotIssued       = errors.New("nft not issued")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorKind is the wire classification of a ledger error.
type ErrorKind string

const (
	KindUnauthorized    ErrorKind = "Unauthorized"
	KindNotFound        ErrorKind = "NotFound"
	KindAlreadyExists   ErrorKind = "AlreadyExists"
	KindAlreadyErased   ErrorKind = "AlreadyErased"
	KindErased          ErrorKind = "Erased"
	KindAlreadyIssued   ErrorKind = "AlreadyIssued"
	KindNotIssued       ErrorKind = "NotIssued"
	KindInvalidArgument ErrorKind = "InvalidArgument"
	KindInternal        ErrorKind = "Internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrAlreadyErased, KindAlreadyErased},
	{ErrErased, KindErased},
	{ErrAlreadyIssued, KindAlreadyIssued},
	{ErrNotIssued, KindNotIssued},
	{ErrInvalidArgument, KindInvalidArgument},
}

// KindOf classifies err. Anything that is not a ledger sentinel, storage
// failures included, is KindInternal. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
