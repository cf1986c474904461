package conf

/*
   This package wraps viper for the billing app. Configuration is read from
   an env file when one is present; otherwise every lookup falls through to
   the process environment. Once loaded, configuration is treated as
   immutable for the uptime of the application (tests excepted).
*/

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

// An instance of the viper struct containing the conf information. Only made
// accessible through public functions GetEnv, SetEnv, etc.
var envVars viper.Viper

const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// Viper is lazy, do the read and parse of the config file
	var err = v.ReadInConfig()
	if err != nil {
		state = configbad
	}

	return v
}

func init() {
	// Possible config file locations: local development and deployed.
	var locationSlice = [2]string{
		"/go/src/github.com/vitalpath/billing-app/shared_files/decrypted",
		"/etc/billing-app",
	}

	if success, loc := findEnv(locationSlice[:]); success {
		envVars = *setup(loc)
	} else {
		state = noconfigfound
	}
}

func findEnv(location []string) (bool, string) {
	if _, err := os.Stat(location[0] + "/local.env"); err == nil {
		return true, location[0]
	}

	if len(location) == 1 {
		return false, ""
	}

	return findEnv(location[1:])
}

// GetEnv retrieves the value stored in conf. If it does not exist an empty
// string is returned.
func GetEnv(key string) string {
	if state == configgood {
		var value = envVars.GetString(key)
		var b bool

		// Even when the config file loads, a key missing from conf may still
		// exist in the environment. Copy it over to prevent additional OS calls.
		if value == "" {
			value, b = os.LookupEnv(key)
			if b {
				test := &testing.T{}
				var _ = SetEnv(test, key, value)
			}
		}

		return value
	}

	return os.Getenv(key)
}

// LookupEnv augments os.LookupEnv to look in the viper struct first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.Get(key); value != nil && value != "" {
			return value.(string), true
		}
		if v, exist := os.LookupEnv(key); exist {
			test := &testing.T{}
			var _ = SetEnv(test, key, v)
			return v, exist
		}

		return "", false
	}

	return os.LookupEnv(key)
}

// SetEnv adds key values into conf. This function should only be used either
// in this package itself or testing. The protect parameter is type *testing.T
// to ensure developers knowingly use it in the appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	var err error

	if state == configgood {
		envVars.Set(key, value)
	} else {
		err = os.Setenv(key, value)
	}

	return err
}

// UnsetEnv "unsets" a variable. Like SetEnv, this should only be used either
// in this package itself or testing.
func UnsetEnv(protect *testing.T, key string) error {
	var err error

	if state == configgood {
		envVars.Set(key, "")
	}

	err = os.Unsetenv(key)

	return err
}
