package signatures

import "fmt"

type codedError struct {
	code string
	err  error
}

func (e codedError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e codedError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code, e.g. "signatures.sign.empty_content".
func (e codedError) Code() string {
	return e.code
}

// SigningError reports that a signing act did not complete. Nothing was committed.
type SigningError struct {
	codedError
}

// VerificationError reports that the signature to act on does not exist.
// It is distinct from a successful verification that returned false.
type VerificationError struct {
	codedError
}

// PersistenceError reports that the underlying store failed.
type PersistenceError struct {
	codedError
}

const (
	opSign           = "signatures.sign"
	opVerify         = "signatures.verify"
	opRevoke         = "signatures.revoke"
	opGet            = "signatures.get"
	opListByDocument = "signatures.list_by_document"
	opTrail          = "signatures.trail"
)

func errorCode(operation, reason string) string {
	return fmt.Sprintf("%s.%s", operation, reason)
}

func newSigningError(operation, reason string, cause error) error {
	return &SigningError{codedError{code: errorCode(operation, reason), err: cause}}
}

func newVerificationError(operation, reason string, cause error) error {
	return &VerificationError{codedError{code: errorCode(operation, reason), err: cause}}
}

func newPersistenceError(operation, reason string, cause error) error {
	return &PersistenceError{codedError{code: errorCode(operation, reason), err: cause}}
}
