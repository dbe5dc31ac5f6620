package headless

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/util"
	"go.uber.org/zap"
)

const consoleModuleName = "headless:console"

type console struct {
	util *goja.Object
}

func (c *console) log(log func(msg string, fields ...zap.Field)) func(goja.FunctionCall, *goja.Runtime) goja.Value {
	return func(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
		format, ok := goja.AssertFunction(c.util.Get("format"))
		if !ok {
			panic(vm.NewTypeError("util.format is not a function"))
		}

		ret, err := format(c.util, call.Arguments...)
		if err != nil {
			panic(err)
		}

		fields := make([]zap.Field, 0, 3)
		if stacks := vm.CaptureCallStack(0, nil); len(stacks) > 1 {
			caller := stacks[1]
			fields = append(fields,
				zap.String("position", caller.Position().String()),
				zap.String("funcName", caller.FuncName()),
				zap.String("script", caller.SrcName()),
			)
		}

		log(ret.String(), fields...)

		return goja.Undefined()
	}
}

// requireConsole routes console.* calls of page scripts to logger.
func requireConsole(logger *zap.Logger) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		c := &console{
			util: require.Require(runtime, util.ModuleName).(*goja.Object),
		}

		o := module.Get("exports").(*goja.Object)
		o.Set("log", c.log(logger.Info))
		o.Set("info", c.log(logger.Info))
		o.Set("debug", c.log(logger.Debug))
		o.Set("warn", c.log(logger.Warn))
		o.Set("error", c.log(logger.Error))
	}
}
