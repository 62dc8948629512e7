package stdx

// Must0 panics if the provided error is not nil. It is meant for call sites
// where an error genuinely cannot occur and should halt the program if it
// somehow does, such as test fixtures and process initialization.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v when err is nil and panics otherwise. It collapses the
// common value-and-error return shape at call sites that cannot fail.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Must2 is Must1 for functions returning two values and an error.
func Must2[T any, V any](t T, v V, err error) (T, V) {
	if err != nil {
		panic(err)
	}
	return t, v
}
