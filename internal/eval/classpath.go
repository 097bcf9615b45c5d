package eval

import "strings"

var sourceRoots = []string{"src/main/java/", "src/test/java/"}

// NormalizeClasspath converts a Java source file path into a dotted
// classpath identifier: strip known source
// roots, drop the .java suffix, replace '/' with '.', and optionally trim
// the tail method-name segment.
func NormalizeClasspath(filePath string, ignoreMethodNames bool) string {
	path := filePath
	for _, root := range sourceRoots {
		if strings.HasPrefix(path, root) {
			path = strings.TrimPrefix(path, root)
			break
		}
	}
	path = strings.TrimSuffix(path, ".java")
	classpath := strings.ReplaceAll(path, "/", ".")

	if ignoreMethodNames {
		classpath = trimMethodSuffix(classpath)
	}
	return classpath
}

// trimMethodSuffix drops a trailing `.methodName` segment when the tail
// segment's first character is lowercase — the heuristic distinguishing a
// method name from a class name in a dotted path.
func trimMethodSuffix(classpath string) string {
	idx := strings.LastIndex(classpath, ".")
	if idx < 0 || idx == len(classpath)-1 {
		return classpath
	}
	tail := classpath[idx+1:]
	if tail == "" || !isLowerFirst(tail) {
		return classpath
	}
	return classpath[:idx]
}

func isLowerFirst(s string) bool {
	r := s[0]
	return r >= 'a' && r <= 'z'
}

// LooksLikeClasspath reports whether a ground-truth identifier already
// resembles a dotted classpath rather than a file path — it contains a
// '.' and does not end in ".java".
func LooksLikeClasspath(s string) bool {
	return strings.Contains(s, ".") && !strings.HasSuffix(s, ".java")
}

// NormalizeGroundTruth applies the same classpath rules to a ground-truth
// identifier when it looks like a raw file path, leaving it unchanged when
// it already looks like a dotted classpath.
func NormalizeGroundTruth(id string, convert, ignoreMethodNames bool) string {
	if !convert {
		return id
	}
	if LooksLikeClasspath(id) {
		return id
	}
	return NormalizeClasspath(id, ignoreMethodNames)
}
