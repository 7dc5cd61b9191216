package config

import (
	"os"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

const exampleConfig = `# apitree configuration
sources:
  roots:
    - src
  scanner: python
  # max_file_size: 2097152
  # include_private: false

ignore:
  patterns:
    - "**/tests/**"
    - "**/_vendor/**"
  file: .apitreeignore

naming:
  collapse_namespaces: true
  flatten_private: true
  # flatten:
  #   - "mypkg.**._impl"

render:
  template: markdown
  title: API Reference
  toc_depth: 2
  # workers: 4
  fail_on_error: false
  verify_links: true

# source_link: "https://git.example.com/org/repo/blob/{rev}/{root}/{path}#L{line}"
# source_link_rev: main

output:
  directory: site
  prune: true

history:
  enabled: false
  # path: .apitree/history.db

watch:
  debounce: 500ms
  # interval: 1h
`

// Init writes an example configuration file. An existing file is kept unless force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", path).
			Build()
	}
	return nil
}
