package config

type Config struct {
	Warehouse   string        `yaml:"warehouse"`
	Parallelism int           `yaml:"parallelism"`
	Existing    string        `yaml:"existing"`
	Java        string        `yaml:"java"`
	Schedule    string        `yaml:"schedule"`
	Storage     StorageConfig `yaml:"storage"`
}

type StorageConfig struct {
	Enabled   bool   `yaml:"-"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}
