package worker

// SetFileReader swaps the file reader in tests.
func SetFileReader(c *ProcessConsumer, f func(string) ([]byte, error)) {
	c.readFile = f
}
