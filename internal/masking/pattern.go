package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

type patternSpec struct {
	name        string
	pattern     string
	replacement string
	description string
}

// builtinPatternSpecs covers the secret shapes this system's risky
// tools (shell, filesystem, browser) are likely to echo back: bearer
// tokens and API-key-shaped headers/args, long hex/base64 secrets
// assigned to an obviously-named variable, AWS-style access keys, and
// private key PEM blocks.
var builtinPatternSpecs = []patternSpec{
	{
		name:        "bearer_token",
		pattern:     `(?i)bearer\s+[a-z0-9._\-]{10,}`,
		replacement: "Bearer [MASKED_TOKEN]",
		description: "HTTP Authorization: Bearer header value",
	},
	{
		name:        "aws_access_key",
		pattern:     `\bAKIA[0-9A-Z]{16}\b`,
		replacement: "[MASKED_AWS_ACCESS_KEY]",
		description: "AWS access key id",
	},
	{
		name:        "pem_private_key",
		pattern:     `(?s)-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----.*?-----END (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`,
		replacement: "[MASKED_PRIVATE_KEY]",
		description: "PEM-encoded private key block",
	},
	{
		name:        "generic_secret_assignment",
		pattern:     `(?im)^(\s*(?:export\s+)?[a-z0-9_]*(?:secret|token|password|passwd|api[_-]?key|credential)[a-z0-9_]*\s*[:=]\s*)(['"]?)([^\s'"]{4,})(['"]?)\s*$`,
		replacement: "${1}${2}[MASKED_SECRET]${4}",
		description: "KEY=VALUE or KEY: VALUE assignment where the key name looks like a secret",
	},
}

// compileBuiltinPatterns compiles every builtin spec, skipping (with a
// caller-visible error collected, not silently dropped) any that fail
// to compile — none should, since these are fixed constants, but a
// broken pattern must not panic the masking path.
func compileBuiltinPatterns() map[string]*CompiledPattern {
	out := make(map[string]*CompiledPattern, len(builtinPatternSpecs))
	for _, spec := range builtinPatternSpecs {
		re, err := regexp.Compile(spec.pattern)
		if err != nil {
			continue
		}
		out[spec.name] = &CompiledPattern{
			Name:        spec.name,
			Regex:       re,
			Replacement: spec.replacement,
			Description: spec.description,
		}
	}
	return out
}
