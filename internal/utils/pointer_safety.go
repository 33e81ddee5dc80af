package utils

// Ptr returns a pointer to a copy of v
func Ptr[T any](v T) *T {
	return &v
}

// ClonePtr returns a pointer to a copy of *v, or nil when v is nil.
func ClonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
