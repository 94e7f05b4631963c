package actions

// Builtins returns one instance of every built-in action handler.
func Builtins(httpCfg HTTPConfig) []Handler {
	return []Handler{
		NewHTTPGetHandler(httpCfg),
		NewXMLParseHandler(),
		NewTransformHandler(),
		NewJQHandler(),
		NewExprEvalHandler(),
		NewAssertHandler(),
	}
}

// RegisterBuiltins registers every built-in handler with the registry.
func RegisterBuiltins(r Registry, httpCfg HTTPConfig) error {
	for _, h := range Builtins(httpCfg) {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}
