package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClasspathStripsSourceRoot(t *testing.T) {
	got := NormalizeClasspath("src/main/java/com/skax/library/controller/BookController.java", true)
	assert.Equal(t, "com.skax.library.controller.BookController", got)
}

func TestNormalizeClasspathStripsTestRoot(t *testing.T) {
	got := NormalizeClasspath("src/test/java/com/skax/library/BookControllerTest.java", false)
	assert.Equal(t, "com.skax.library.BookControllerTest", got)
}

func TestNormalizeClasspathNoKnownRootLeavesPathAsIs(t *testing.T) {
	got := NormalizeClasspath("com/skax/library/Book.java", false)
	assert.Equal(t, "com.skax.library.Book", got)
}

func TestTrimMethodSuffixOnlyWhenLowercase(t *testing.T) {
	assert.Equal(t, "com.skax.BookController", trimMethodSuffix("com.skax.BookController.getTitle"))
	assert.Equal(t, "com.skax.BookController", trimMethodSuffix("com.skax.BookController"))
}

func TestLooksLikeClasspath(t *testing.T) {
	assert.True(t, LooksLikeClasspath("com.skax.library.controller.BookController"))
	assert.False(t, LooksLikeClasspath("src/main/java/com/skax/library/controller/BookController.java"))
	assert.False(t, LooksLikeClasspath("PlainIdentifier"))
}

func TestNormalizeGroundTruthLeavesDottedPathsAlone(t *testing.T) {
	got := NormalizeGroundTruth("com.skax.library.controller.BookController", true, true)
	assert.Equal(t, "com.skax.library.controller.BookController", got)
}

func TestNormalizeGroundTruthConvertsFilePaths(t *testing.T) {
	got := NormalizeGroundTruth("src/main/java/com/skax/library/controller/BookController.java", true, true)
	assert.Equal(t, "com.skax.library.controller.BookController", got)
}

func TestNormalizeGroundTruthNoOpWhenConversionDisabled(t *testing.T) {
	got := NormalizeGroundTruth("src/main/java/com/skax/Book.java", false, false)
	assert.Equal(t, "src/main/java/com/skax/Book.java", got)
}
